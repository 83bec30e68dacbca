package topology

import (
	"errors"
	"fmt"
	"slices"
)

// backendVariables must reach the backend container, either as plain
// environment or from a secret.
var backendVariables = []string{"SEQ_USER", "SEQ_PW", "SEQ_DB", "SEQ_PORT", "SEQ_HOST", "ENVIRONMENT"}

// Validate checks the deployment invariants and reports every violation.
func (t Topology) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if t.Region == "" {
		add("region is required")
	}

	n := t.Network
	if n.MaxAZs < 2 {
		add("network: at least 2 availability zones required, got %d", n.MaxAZs)
	}
	if n.NATGateways < 1 {
		add("network: at least one NAT gateway required for private egress")
	}
	if !n.hasSubnet(SubnetPublic) {
		add("network: a public subnet tier is required")
	}
	if !n.hasSubnet(SubnetPrivateWithEgress) {
		add("network: a private subnet tier with egress is required")
	}

	db := t.Database
	if db.Name == "" {
		errs = append(errs, ErrDatabaseNameRequired)
	}
	if db.Engine != "postgres" {
		add("database: engine must be postgres, got %q", db.Engine)
	}
	if db.Port != PostgresPort {
		add("database: port must be %d, got %d", PostgresPort, db.Port)
	}
	if db.PubliclyAccessible {
		add("database: must not be publicly accessible")
	}
	if db.Subnets == SubnetPublic {
		add("database: must be placed in private subnets")
	}
	if len(db.IngressFrom) == 0 {
		add("database: ingress must name at least one compute security group")
	}

	groups := map[string]bool{}
	seen := map[string]bool{}
	for _, s := range t.Services {
		groups[s.SecurityGroup] = true
		if seen[s.Name] {
			add("service %s: duplicate name", s.Name)
		}
		seen[s.Name] = true
		errs = append(errs, s.validate()...)
	}
	for _, g := range db.IngressFrom {
		if !groups[g] {
			add("database: ingress group %q is not a service security group", g)
		}
	}
	for _, required := range []string{ServiceFrontend, ServiceBackend} {
		if !seen[required] {
			add("service %s: missing", required)
		}
	}

	if backend, ok := t.Service(ServiceBackend); ok {
		for _, key := range backendVariables {
			_, inEnv := backend.Environment[key]
			_, inSecrets := backend.Secrets[key]
			if !inEnv && !inSecrets {
				add("service backend: variable %s is not provided", key)
			}
		}
		if env := backend.Environment["ENVIRONMENT"]; env != "" && env != "production" {
			add("service backend: ENVIRONMENT must be production, got %q", env)
		}
		if db.Name != "" && backend.Environment["SEQ_DB"] != "" && backend.Environment["SEQ_DB"] != db.Name {
			add("service backend: SEQ_DB %q does not match database name %q", backend.Environment["SEQ_DB"], db.Name)
		}
	}

	return errors.Join(errs...)
}

func (n Network) hasSubnet(kind SubnetType) bool {
	return slices.ContainsFunc(n.Subnets, func(s Subnet) bool { return s.Type == kind })
}

func (s Service) validate() []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("service %s: "+format, append([]any{s.Name}, args...)...))
	}

	if s.Subnets == SubnetPublic {
		add("tasks must run in private subnets")
	}
	if s.SecurityGroup == "" {
		add("security group is required")
	}
	if s.ContainerPort <= 0 {
		add("container port is required")
	}

	lb := s.LoadBalancer
	if !lb.Public {
		add("load balancer must be internet-facing")
	}
	if lb.Protocol != "HTTP" || lb.Port != 80 {
		add("load balancer must listen on HTTP port 80, got %s:%d", lb.Protocol, lb.Port)
	}

	sc := s.Scaling
	if sc.MinCapacity < 1 || sc.MaxCapacity < sc.MinCapacity {
		add("capacity range %d-%d is invalid", sc.MinCapacity, sc.MaxCapacity)
	}
	if sc.CPUTargetPercent <= 0 || sc.CPUTargetPercent > 100 {
		add("cpu target %d%% out of range", sc.CPUTargetPercent)
	}
	if sc.MemoryTargetPercent <= 0 || sc.MemoryTargetPercent > 100 {
		add("memory target %d%% out of range", sc.MemoryTargetPercent)
	}
	if sc.ScaleInCooldownSeconds <= 0 || sc.ScaleOutCooldownSeconds <= 0 {
		add("scale cooldowns must be positive")
	}
	return errs
}

// Package topology describes the target deployment of task-api as data: the
// network, the managed Postgres instance and the two load-balanced services.
//
// The description is validated against the deployment invariants and
// rendered as YAML/JSON for review or as Terraform variables for
// infra/terraform.
package topology

import (
	"errors"
)

// SubnetType classifies a subnet tier.
type SubnetType string

const (
	SubnetPublic            SubnetType = "public"
	SubnetPrivateWithEgress SubnetType = "private_with_egress"
	SubnetPrivateIsolated   SubnetType = "private_isolated"
)

// Service names every deployment must contain.
const (
	ServiceFrontend = "frontend"
	ServiceBackend  = "backend"
)

// DefaultRegion is the region the stack is deployed to.
const DefaultRegion = "us-east-1"

// DatabaseAddressPlaceholder in a service environment value is replaced by
// the database host name when the stack is applied.
const DatabaseAddressPlaceholder = "{{database.address}}"

// PostgresPort is the only port the database accepts connections on.
const PostgresPort = 5432

// ErrDatabaseNameRequired is returned when no database name was supplied.
// Past revisions disagreed on the name (testlocal, test-local, test_local),
// so there is no default.
var ErrDatabaseNameRequired = errors.New("topology: database name is required")

// Topology is the whole deployment.
type Topology struct {
	Name     string    `yaml:"name" json:"name"`
	Region   string    `yaml:"region" json:"region"`
	Network  Network   `yaml:"network" json:"network"`
	Database Database  `yaml:"database" json:"database"`
	Services []Service `yaml:"services" json:"services"`
}

// Network is the isolated virtual network.
type Network struct {
	Name        string   `yaml:"name" json:"name"`
	CIDR        string   `yaml:"cidr" json:"cidr"`
	MaxAZs      int      `yaml:"maxAzs" json:"maxAzs"`
	NATGateways int      `yaml:"natGateways" json:"natGateways"`
	Subnets     []Subnet `yaml:"subnets" json:"subnets"`
}

// Subnet is one subnet tier, replicated across every AZ.
type Subnet struct {
	Name string     `yaml:"name" json:"name"`
	Type SubnetType `yaml:"type" json:"type"`
}

// Database is the managed relational instance.
type Database struct {
	Engine             string     `yaml:"engine" json:"engine"`
	EngineVersion      string     `yaml:"engineVersion" json:"engineVersion"`
	InstanceClass      string     `yaml:"instanceClass" json:"instanceClass"`
	Name               string     `yaml:"name" json:"name"`
	Username           string     `yaml:"username" json:"username"`
	Port               int        `yaml:"port" json:"port"`
	Subnets            SubnetType `yaml:"subnets" json:"subnets"`
	PubliclyAccessible bool       `yaml:"publiclyAccessible" json:"publiclyAccessible"`
	// IngressFrom lists the service security groups allowed to connect.
	IngressFrom []string `yaml:"ingressFrom" json:"ingressFrom"`
}

// Service is a containerized service behind its own load balancer.
type Service struct {
	Name          string            `yaml:"name" json:"name"`
	Image         string            `yaml:"image" json:"image"`
	ContainerPort int               `yaml:"containerPort" json:"containerPort"`
	CPU           int               `yaml:"cpu" json:"cpu"`
	MemoryMiB     int               `yaml:"memoryMiB" json:"memoryMiB"`
	Subnets       SubnetType        `yaml:"subnets" json:"subnets"`
	SecurityGroup string            `yaml:"securityGroup" json:"securityGroup"`
	LoadBalancer  LoadBalancer      `yaml:"loadBalancer" json:"loadBalancer"`
	Scaling       Scaling           `yaml:"scaling" json:"scaling"`
	Environment   map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`
	// Secrets maps variable names to keys of the database master-user secret.
	Secrets map[string]string `yaml:"secrets,omitempty" json:"secrets,omitempty"`
}

// LoadBalancer fronts a service.
type LoadBalancer struct {
	Public          bool   `yaml:"public" json:"public"`
	Protocol        string `yaml:"protocol" json:"protocol"`
	Port            int    `yaml:"port" json:"port"`
	HealthCheckPath string `yaml:"healthCheckPath" json:"healthCheckPath"`
}

// Scaling is the target-tracking autoscaling policy.
type Scaling struct {
	MinCapacity             int `yaml:"minCapacity" json:"minCapacity"`
	MaxCapacity             int `yaml:"maxCapacity" json:"maxCapacity"`
	CPUTargetPercent        int `yaml:"cpuTargetPercent" json:"cpuTargetPercent"`
	MemoryTargetPercent     int `yaml:"memoryTargetPercent" json:"memoryTargetPercent"`
	ScaleInCooldownSeconds  int `yaml:"scaleInCooldownSeconds" json:"scaleInCooldownSeconds"`
	ScaleOutCooldownSeconds int `yaml:"scaleOutCooldownSeconds" json:"scaleOutCooldownSeconds"`
}

// Service returns the named service.
func (t Topology) Service(name string) (Service, bool) {
	for _, s := range t.Services {
		if s.Name == name {
			return s, true
		}
	}
	return Service{}, false
}

// Default returns the reference deployment. dbName must be chosen by the
// caller; Validate rejects an empty one.
func Default(dbName string) Topology {
	cooldown := 60
	return Topology{
		Name:   "task-api",
		Region: DefaultRegion,
		Network: Network{
			Name:        "task-api-vpc",
			CIDR:        "10.0.0.0/16",
			MaxAZs:      2,
			NATGateways: 1,
			Subnets: []Subnet{
				{Name: "Public", Type: SubnetPublic},
				{Name: "Private", Type: SubnetPrivateWithEgress},
			},
		},
		Database: Database{
			Engine:        "postgres",
			EngineVersion: "16",
			InstanceClass: "db.t3.micro",
			Name:          dbName,
			Username:      "postgres",
			Port:          PostgresPort,
			Subnets:       SubnetPrivateWithEgress,
			IngressFrom:   []string{"ecs-tasks"},
		},
		Services: []Service{
			{
				Name:          ServiceFrontend,
				Image:         "frontend:latest",
				ContainerPort: 80,
				CPU:           256,
				MemoryMiB:     512,
				Subnets:       SubnetPrivateWithEgress,
				SecurityGroup: "ecs-tasks",
				LoadBalancer:  LoadBalancer{Public: true, Protocol: "HTTP", Port: 80, HealthCheckPath: "/"},
				Scaling: Scaling{
					MinCapacity: 1, MaxCapacity: 4,
					CPUTargetPercent: 60, MemoryTargetPercent: 70,
					ScaleInCooldownSeconds: cooldown, ScaleOutCooldownSeconds: cooldown,
				},
			},
			{
				Name:          ServiceBackend,
				Image:         "task-api:latest",
				ContainerPort: 4000,
				CPU:           256,
				MemoryMiB:     512,
				Subnets:       SubnetPrivateWithEgress,
				SecurityGroup: "ecs-tasks",
				LoadBalancer:  LoadBalancer{Public: true, Protocol: "HTTP", Port: 80, HealthCheckPath: "/healthz"},
				Scaling: Scaling{
					MinCapacity: 1, MaxCapacity: 4,
					CPUTargetPercent: 60, MemoryTargetPercent: 75,
					ScaleInCooldownSeconds: cooldown, ScaleOutCooldownSeconds: cooldown,
				},
				Environment: map[string]string{
					"SEQ_USER":    "postgres",
					"SEQ_DB":      dbName,
					"SEQ_PORT":    "5432",
					"SEQ_HOST":    DatabaseAddressPlaceholder,
					"ENVIRONMENT": "production",
				},
				Secrets: map[string]string{
					"SEQ_PW": "password",
				},
			},
		},
	}
}

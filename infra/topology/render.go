package topology

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAML renders the topology.
func (t Topology) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return nil, fmt.Errorf("encode topology yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode topology yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// JSON renders the topology with indentation.
func (t Topology) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode topology json: %w", err)
	}
	return append(data, '\n'), nil
}

// Parse decodes a YAML (or JSON) topology. Unknown fields are rejected.
func Parse(data []byte) (Topology, error) {
	var t Topology
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return Topology{}, fmt.Errorf("decode topology: %w", err)
	}
	return t, nil
}

// TerraformVars maps the topology onto the variables of infra/terraform.
func (t Topology) TerraformVars() map[string]any {
	public, private := 0, 0
	for _, s := range t.Network.Subnets {
		switch s.Type {
		case SubnetPublic:
			public++
		case SubnetPrivateWithEgress, SubnetPrivateIsolated:
			private++
		}
	}

	services := map[string]any{}
	for _, s := range t.Services {
		env := map[string]string{}
		for k, v := range s.Environment {
			env[k] = v
		}
		secrets := map[string]string{}
		for k, v := range s.Secrets {
			secrets[k] = v
		}
		services[s.Name] = map[string]any{
			"image":              s.Image,
			"container_port":     s.ContainerPort,
			"cpu":                s.CPU,
			"memory":             s.MemoryMiB,
			"lb_port":            s.LoadBalancer.Port,
			"health_check_path":  s.LoadBalancer.HealthCheckPath,
			"min_capacity":       s.Scaling.MinCapacity,
			"max_capacity":       s.Scaling.MaxCapacity,
			"cpu_target":         s.Scaling.CPUTargetPercent,
			"memory_target":      s.Scaling.MemoryTargetPercent,
			"scale_in_cooldown":  s.Scaling.ScaleInCooldownSeconds,
			"scale_out_cooldown": s.Scaling.ScaleOutCooldownSeconds,
			"environment":        env,
			"secrets":            secrets,
		}
	}

	return map[string]any{
		"name":                   t.Name,
		"region":                 t.Region,
		"vpc_cidr":               t.Network.CIDR,
		"max_azs":                t.Network.MaxAZs,
		"nat_gateways":           t.Network.NATGateways,
		"public_subnet_tiers":    public,
		"private_subnet_tiers":   private,
		"db_name":                t.Database.Name,
		"db_username":            t.Database.Username,
		"db_port":                t.Database.Port,
		"db_engine_version":      t.Database.EngineVersion,
		"db_instance_class":      t.Database.InstanceClass,
		"db_publicly_accessible": t.Database.PubliclyAccessible,
		"services":               services,
	}
}

// TerraformVarsJSON renders TerraformVars as a *.tfvars.json document.
func (t Topology) TerraformVarsJSON() ([]byte, error) {
	data, err := json.MarshalIndent(t.TerraformVars(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode terraform vars: %w", err)
	}
	return append(data, '\n'), nil
}

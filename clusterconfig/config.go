// Package clusterconfig generates and validates the cluster configuration
// handed to each test invocation. Defaults, allowed values and validators
// mirror what the cluster CLI accepts, so a config that passes here is one
// the harness can actually provision.
package clusterconfig

import (
	"bytes"
	"fmt"

	"github.com/hpc-infra/cluster-acceptor/types"
)

// ClusterConfig is the concrete configuration for one invocation's cluster.
type ClusterConfig struct {
	Region              string
	KeyName             string
	BaseOS              string
	Scheduler           string
	MasterInstanceType  string
	ComputeInstanceType string
	ClusterType         string
	Placement           string
	InitialQueueSize    int
	MaxQueueSize        int
	SpotBidPercentage   int
	SSHFrom             string
	VolumeType          string
	VolumeSize          int
	ScaledownIdletime   int
}

// Defaults as the cluster CLI defines them.
const (
	DefaultRegion           = "us-east-1"
	DefaultInstanceType     = "t2.micro"
	DefaultClusterType      = "ondemand"
	DefaultPlacement        = "compute"
	DefaultSSHFrom          = "0.0.0.0/0"
	DefaultVolumeType       = "gp2"
	DefaultVolumeSize       = 20
	DefaultMaxQueueSize     = 10
	DefaultScaledownMinutes = 10
)

// NewDefault returns a config populated with scheme defaults only.
func NewDefault() ClusterConfig {
	return ClusterConfig{
		Region:              DefaultRegion,
		ClusterType:         DefaultClusterType,
		Placement:           DefaultPlacement,
		MasterInstanceType:  DefaultInstanceType,
		ComputeInstanceType: DefaultInstanceType,
		MaxQueueSize:        DefaultMaxQueueSize,
		SSHFrom:             DefaultSSHFrom,
		VolumeType:          DefaultVolumeType,
		VolumeSize:          DefaultVolumeSize,
		ScaledownIdletime:   DefaultScaledownMinutes,
	}
}

// Generate builds the cluster config for an invocation: defaults overlaid
// with the invocation's dimension coordinates.
func Generate(inv types.TestInvocation) ClusterConfig {
	cfg := NewDefault()
	cfg.Region = inv.Region
	cfg.BaseOS = inv.OS
	cfg.Scheduler = inv.Scheduler
	cfg.MasterInstanceType = inv.Instance
	cfg.ComputeInstanceType = inv.Instance
	return cfg
}

// Encode renders the config in the CLI's section/key file format.
func (c ClusterConfig) Encode() []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "[aws]\naws_region_name = %s\n\n", c.Region)

	fmt.Fprintf(&buf, "[cluster default]\n")
	if c.KeyName != "" {
		fmt.Fprintf(&buf, "key_name = %s\n", c.KeyName)
	}
	fmt.Fprintf(&buf, "base_os = %s\n", c.BaseOS)
	fmt.Fprintf(&buf, "scheduler = %s\n", c.Scheduler)
	fmt.Fprintf(&buf, "master_instance_type = %s\n", c.MasterInstanceType)
	fmt.Fprintf(&buf, "compute_instance_type = %s\n", c.ComputeInstanceType)
	fmt.Fprintf(&buf, "cluster_type = %s\n", c.ClusterType)
	fmt.Fprintf(&buf, "placement = %s\n", c.Placement)
	fmt.Fprintf(&buf, "initial_queue_size = %d\n", c.InitialQueueSize)
	fmt.Fprintf(&buf, "max_queue_size = %d\n", c.MaxQueueSize)
	if c.ClusterType == "spot" && c.SpotBidPercentage > 0 {
		fmt.Fprintf(&buf, "spot_bid_percentage = %d\n", c.SpotBidPercentage)
	}
	fmt.Fprintf(&buf, "vpc_settings = default\nebs_settings = default\nscaling_settings = default\n\n")

	fmt.Fprintf(&buf, "[vpc default]\nssh_from = %s\n\n", c.SSHFrom)
	fmt.Fprintf(&buf, "[ebs default]\nvolume_type = %s\nvolume_size = %d\n\n", c.VolumeType, c.VolumeSize)
	fmt.Fprintf(&buf, "[scaling default]\nscaledown_idletime = %d\n", c.ScaledownIdletime)

	return buf.Bytes()
}

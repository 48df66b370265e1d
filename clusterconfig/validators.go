package clusterconfig

import (
	"fmt"
	"regexp"
	"slices"
)

// Allowed values and patterns, as the cluster CLI's section mappings define
// them.
var (
	AllowedBaseOS     = []string{"alinux", "alinux2", "ubuntu1604", "ubuntu1804", "centos6", "centos7"}
	AllowedSchedulers = []string{"awsbatch", "sge", "slurm", "torque"}
	AllowedVolumes    = []string{"standard", "io1", "gp2", "st1", "sc1"}
	AllowedPlacement  = []string{"cluster", "compute"}
	AllowedCluster    = []string{"ondemand", "spot"}

	// awsbatch clusters only run on Amazon Linux.
	awsbatchBaseOS = []string{"alinux", "alinux2"}

	cidrPattern     = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}/(0|1[6-9]|2[0-9]|3[0-2])$`)
	regionPattern   = regexp.MustCompile(`^[a-z]{2}(-gov)?(-iso[a-z]?)?-[a-z]+-\d$`)
	instancePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*\.[a-z0-9]+$`)
)

// validator checks one aspect of a config. Validators run after all fields
// are populated, so cross-field checks are safe.
type validator func(c ClusterConfig) error

var validators = []validator{
	regionValidator,
	baseOSValidator,
	schedulerValidator,
	instanceTypeValidator,
	clusterTypeValidator,
	placementValidator,
	queueSizeValidator,
	spotBidValidator,
	sshFromValidator,
	volumeValidator,
}

// Validate runs all validators and returns the first violation.
func (c ClusterConfig) Validate() error {
	for _, v := range validators {
		if err := v(c); err != nil {
			return err
		}
	}
	return nil
}

func regionValidator(c ClusterConfig) error {
	if !regionPattern.MatchString(c.Region) {
		return fmt.Errorf("parameter aws_region_name has an invalid value %q", c.Region)
	}
	return nil
}

func baseOSValidator(c ClusterConfig) error {
	if !slices.Contains(AllowedBaseOS, c.BaseOS) {
		return fmt.Errorf("parameter base_os has an invalid value %q (allowed: %v)", c.BaseOS, AllowedBaseOS)
	}
	return nil
}

func schedulerValidator(c ClusterConfig) error {
	if !slices.Contains(AllowedSchedulers, c.Scheduler) {
		return fmt.Errorf("parameter scheduler has an invalid value %q (allowed: %v)", c.Scheduler, AllowedSchedulers)
	}
	if c.Scheduler == "awsbatch" && !slices.Contains(awsbatchBaseOS, c.BaseOS) {
		return fmt.Errorf("scheduler awsbatch is not supported on base_os %q", c.BaseOS)
	}
	return nil
}

func instanceTypeValidator(c ClusterConfig) error {
	for _, it := range []struct{ key, value string }{
		{"master_instance_type", c.MasterInstanceType},
		{"compute_instance_type", c.ComputeInstanceType},
	} {
		if !instancePattern.MatchString(it.value) {
			return fmt.Errorf("parameter %s has an invalid value %q", it.key, it.value)
		}
	}
	return nil
}

func clusterTypeValidator(c ClusterConfig) error {
	if !slices.Contains(AllowedCluster, c.ClusterType) {
		return fmt.Errorf("parameter cluster_type has an invalid value %q", c.ClusterType)
	}
	return nil
}

func placementValidator(c ClusterConfig) error {
	if !slices.Contains(AllowedPlacement, c.Placement) {
		return fmt.Errorf("parameter placement has an invalid value %q", c.Placement)
	}
	return nil
}

func queueSizeValidator(c ClusterConfig) error {
	if c.InitialQueueSize < 0 {
		return fmt.Errorf("parameter initial_queue_size has an invalid value %d", c.InitialQueueSize)
	}
	if c.MaxQueueSize < 1 {
		return fmt.Errorf("parameter max_queue_size has an invalid value %d", c.MaxQueueSize)
	}
	if c.InitialQueueSize > c.MaxQueueSize {
		return fmt.Errorf("initial_queue_size %d exceeds max_queue_size %d", c.InitialQueueSize, c.MaxQueueSize)
	}
	return nil
}

func spotBidValidator(c ClusterConfig) error {
	if c.SpotBidPercentage < 0 || c.SpotBidPercentage > 100 {
		return fmt.Errorf("parameter spot_bid_percentage has an invalid value %d", c.SpotBidPercentage)
	}
	return nil
}

func sshFromValidator(c ClusterConfig) error {
	if !cidrPattern.MatchString(c.SSHFrom) {
		return fmt.Errorf("parameter ssh_from has an invalid value %q", c.SSHFrom)
	}
	return nil
}

func volumeValidator(c ClusterConfig) error {
	if !slices.Contains(AllowedVolumes, c.VolumeType) {
		return fmt.Errorf("parameter volume_type has an invalid value %q", c.VolumeType)
	}
	if c.VolumeSize < 20 {
		return fmt.Errorf("parameter volume_size has an invalid value %d (must be at least 20)", c.VolumeSize)
	}
	return nil
}

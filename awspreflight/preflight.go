package awspreflight

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"github.com/hpc-infra/cluster-acceptor/types"
)

// EC2Client is the minimal interface for the AWS EC2 client required by the
// Checker. These functions are already implemented by the AWS SDK, but we
// define our own type to allow us to mock the client in tests.
type EC2Client interface {
	// https://pkg.go.dev/github.com/aws/aws-sdk-go-v2/service/ec2#Client.DescribeInstanceTypeOfferings
	DescribeInstanceTypeOfferings(ctx context.Context, params *ec2.DescribeInstanceTypeOfferingsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceTypeOfferingsOutput, error)
}

// Checker verifies that the region/instance pairs of a set of invocations
// are actually offered by EC2 before any cluster is created. Results are
// cached per region/instance pair for the lifetime of the Checker.
type Checker struct {
	log    *zap.SugaredLogger
	client EC2Client

	offered map[string]bool
}

func NewChecker(log *zap.SugaredLogger) (*Checker, error) {
	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewCheckerWithClient(log, ec2.NewFromConfig(cfg)), nil
}

func NewCheckerWithClient(log *zap.SugaredLogger, client EC2Client) *Checker {
	return &Checker{
		log:     log,
		client:  client,
		offered: make(map[string]bool),
	}
}

// CheckInvocation returns an error when the invocation's instance type is not
// offered in its region.
func (c *Checker) CheckInvocation(ctx context.Context, inv types.TestInvocation) error {
	offered, err := c.instanceOffered(ctx, inv.Region, inv.Instance)
	if err != nil {
		return err
	}
	if !offered {
		return fmt.Errorf("instance type %s is not offered in region %s", inv.Instance, inv.Region)
	}
	return nil
}

// CheckAll validates every invocation and returns one error per rejected
// invocation, keyed for logging by the invocation key.
func (c *Checker) CheckAll(ctx context.Context, invocations []types.TestInvocation) []error {
	var errs []error
	for _, inv := range invocations {
		if err := c.CheckInvocation(ctx, inv); err != nil {
			c.log.Warnw("Preflight check failed",
				"invocation", inv.Key(),
				"error", err)
			errs = append(errs, fmt.Errorf("%s: %w", inv.Key(), err))
		}
	}
	return errs
}

func (c *Checker) instanceOffered(ctx context.Context, region, instance string) (bool, error) {
	cacheKey := region + "/" + instance
	if offered, ok := c.offered[cacheKey]; ok {
		return offered, nil
	}

	input := &ec2.DescribeInstanceTypeOfferingsInput{
		LocationType: ec2types.LocationTypeRegion,
		Filters: []ec2types.Filter{
			{Name: aws.String("location"), Values: []string{region}},
			{Name: aws.String("instance-type"), Values: []string{instance}},
		},
	}

	result, err := c.client.DescribeInstanceTypeOfferings(ctx, input, func(o *ec2.Options) {
		o.Region = region
	})
	if err != nil {
		return false, fmt.Errorf("describe instance type offerings request failed: %w", err)
	}

	offered := len(result.InstanceTypeOfferings) > 0
	c.offered[cacheKey] = offered
	return offered, nil
}

// Package awsbatch runs dispatch jobs on AWS Batch.
package awsbatch

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/batch"
	"github.com/aws/aws-sdk-go-v2/service/batch/types"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"

	"github.com/G-Research/readsizer/internal/common/sizererrors"
	"github.com/G-Research/readsizer/internal/dispatch"
)

// API is the subset of the Batch client used here.
type API interface {
	SubmitJob(ctx context.Context, params *batch.SubmitJobInput, optFns ...func(*batch.Options)) (*batch.SubmitJobOutput, error)
	DescribeJobs(ctx context.Context, params *batch.DescribeJobsInput, optFns ...func(*batch.Options)) (*batch.DescribeJobsOutput, error)
}

var transientErrorCodes = map[string]bool{
	"TooManyRequestsException": true,
	"ThrottlingException":      true,
	"Throttling":               true,
	"RequestLimitExceeded":     true,
	"ServerException":          true,
	"InternalError":            true,
	"ServiceUnavailable":       true,
}

// Client implements dispatch.Backend and dispatch.StatusReader.
type Client struct {
	api API
}

func New(api API) *Client {
	return &Client{api: api}
}

// NewFromEnvironment builds a client from the default AWS credential chain.
func NewFromEnvironment(ctx context.Context, region string) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "error loading AWS configuration")
	}
	return New(batch.NewFromConfig(cfg)), nil
}

func (c *Client) Submit(ctx context.Context, job *dispatch.JobSpec) (string, error) {
	out, err := c.api.SubmitJob(ctx, &batch.SubmitJobInput{
		JobName:       aws.String(job.Name),
		JobQueue:      aws.String(job.Queue),
		JobDefinition: aws.String(job.Definition),
		ContainerOverrides: &types.ContainerOverrides{
			Command: job.Command,
		},
		Tags: job.Tags,
	})
	if err != nil {
		return "", classify("SubmitJob", err)
	}
	return aws.ToString(out.JobId), nil
}

func (c *Client) Describe(ctx context.Context, jobIDs []string) ([]dispatch.JobStatus, error) {
	if len(jobIDs) > dispatch.DescribeBatchSize {
		return nil, errors.WithStack(&sizererrors.ErrInvalidArgument{
			Name:    "jobIDs",
			Value:   len(jobIDs),
			Message: "too many job ids for a single request",
		})
	}
	out, err := c.api.DescribeJobs(ctx, &batch.DescribeJobsInput{Jobs: jobIDs})
	if err != nil {
		return nil, classify("DescribeJobs", err)
	}
	statuses := make([]dispatch.JobStatus, 0, len(out.Jobs))
	for _, job := range out.Jobs {
		statuses = append(statuses, dispatch.JobStatus{
			JobID:  aws.ToString(job.JobId),
			State:  string(job.Status),
			Reason: aws.ToString(job.StatusReason),
		})
	}
	return statuses, nil
}

// classify marks throttling, server side faults and errors that never reached the service as transient.
// Anything else the service rejected (e.g. ClientException for an unknown queue) is returned as is.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.WithStack(err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if transientErrorCodes[apiErr.ErrorCode()] || apiErr.ErrorFault() == smithy.FaultServer {
			return sizererrors.Transient(op, err)
		}
		return errors.Wrapf(err, "%s failed", op)
	}
	return sizererrors.Transient(op, err)
}

package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"powerwatch/internal/types"
)

// CloudWatch metric and dimension names.
const (
	MetricPollFailure     = "PollFailure"
	MetricTransition      = "PowerTransition"
	MetricScheduleRefresh = "ScheduleRefresh"
	MetricNotification    = "NotificationAttempt"
	MetricDigest          = "DigestGenerated"

	DimState  = "State"
	DimClass  = "Class"
	DimKind   = "Kind"
	DimResult = "Result"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ Recorder = (*CloudWatch)(nil)

// CloudWatch pushes count metrics to AWS CloudWatch. Successful polls are not
// emitted; at a few seconds per poll they would dominate the bill.
type CloudWatch struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatch creates a recorder publishing to namespace.
func NewCloudWatch(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatch {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatch{client: client, namespace: namespace, logger: logger}
}

func (c *CloudWatch) put(ctx context.Context, name string, dims map[string]string) {
	dimensions := make([]cwtypes.Dimension, 0, len(dims))
	for k, v := range dims {
		dimensions = append(dimensions, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(v)})
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(name),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dimensions,
			},
		},
	}

	if _, err := c.client.PutMetricData(ctx, input); err != nil {
		c.logger.ErrorContext(ctx, "failed to put metric", "metric", name, "error", err)
	}
}

func (c *CloudWatch) PollCompleted(ctx context.Context, ok bool, _ time.Duration) {
	if ok {
		return
	}
	c.put(ctx, MetricPollFailure, nil)
}

func (c *CloudWatch) TransitionRecorded(ctx context.Context, isPowered, isPlanned bool) {
	state, class := transitionLabels(isPowered, isPlanned)
	c.put(ctx, MetricTransition, map[string]string{DimState: state, DimClass: class})
}

func (c *CloudWatch) ScheduleRefreshed(ctx context.Context, ok bool) {
	c.put(ctx, MetricScheduleRefresh, map[string]string{DimResult: result(ok)})
}

func (c *CloudWatch) NotificationSent(ctx context.Context, kind string, ok bool) {
	c.put(ctx, MetricNotification, map[string]string{DimKind: kind, DimResult: result(ok)})
}

func (c *CloudWatch) DigestGenerated(ctx context.Context, kind types.DigestKind, ok bool) {
	c.put(ctx, MetricDigest, map[string]string{DimKind: string(kind), DimResult: result(ok)})
}

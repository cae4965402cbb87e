package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// snsAPI is the minimal SNS interface required by OperatorNotifier.
// *sns.Client from aws-sdk-go-v2 satisfies this interface.
type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// OperatorNotifier publishes short operator notifications to an SNS topic,
// typically fanned out to email or SMS subscriptions.
type OperatorNotifier struct {
	api      snsAPI
	topicARN string
}

// NewOperatorNotifier creates an SNS-backed notifier.
func NewOperatorNotifier(api snsAPI, topicARN string) (*OperatorNotifier, error) {
	if api == nil {
		return nil, errors.New("delivery: sns api must not be nil")
	}
	if strings.TrimSpace(topicARN) == "" {
		return nil, errors.New("delivery: topic ARN must not be empty")
	}
	return &OperatorNotifier{api: api, topicARN: topicARN}, nil
}

// Notify publishes the message. Failures are returned to the executor,
// which isolates them from the rest of the turn.
func (n *OperatorNotifier) Notify(ctx context.Context, subject, message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.New("delivery: message must not be empty")
	}
	_, err := n.api.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("delivery: publish notification: %w", err)
	}
	return nil
}

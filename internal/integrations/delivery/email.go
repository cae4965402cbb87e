package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"profile-agent/internal/pipeline"
)

// sesAPI is the minimal SES interface required by EmailChannel.
// *sesv2.Client from aws-sdk-go-v2 satisfies this interface.
type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailChannel delivers the profile document over SES. The document itself
// is hosted; the email carries the link, so delivery stays a small, cheap
// side effect.
type EmailChannel struct {
	api         sesAPI
	fromAddress string
	documentURL string
}

// NewEmailChannel creates an SES-backed delivery channel.
func NewEmailChannel(api sesAPI, fromAddress, documentURL string) (*EmailChannel, error) {
	if api == nil {
		return nil, errors.New("delivery: ses api must not be nil")
	}
	if strings.TrimSpace(fromAddress) == "" {
		return nil, errors.New("delivery: from address must not be empty")
	}
	if strings.TrimSpace(documentURL) == "" {
		return nil, errors.New("delivery: document URL must not be empty")
	}
	return &EmailChannel{api: api, fromAddress: fromAddress, documentURL: documentURL}, nil
}

// Send emails the document link to the payload address. The idempotency key
// travels as a message header so duplicate suppression can also happen
// downstream.
func (c *EmailChannel) Send(ctx context.Context, p pipeline.DeliveryPayload) (pipeline.DeliveryReceipt, error) {
	if strings.TrimSpace(p.Address) == "" {
		return pipeline.DeliveryReceipt{}, errors.New("delivery: address must not be empty")
	}

	body := fmt.Sprintf(
		"Hello,\n\nThanks for your interest. You can find the full document here:\n%s\n\nBest regards",
		c.documentURL,
	)

	out, err := c.api.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{p.Address},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String("Requested document")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
				Headers: []types.MessageHeader{
					{Name: aws.String("X-Idempotency-Key"), Value: aws.String(p.IdempotencyKey)},
				},
			},
		},
	})
	if err != nil {
		return pipeline.DeliveryReceipt{}, fmt.Errorf("delivery: send email to %s: %w", p.Address, err)
	}

	ref := ""
	if out != nil && out.MessageId != nil {
		ref = *out.MessageId
	}
	return pipeline.DeliveryReceipt{Ref: ref}, nil
}

package email

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/filisonic/skilltude-ai-recruit-hub-sub002/internal/models"
)

// SESAPI is the slice of the SES client the sender needs.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESSender struct {
	Client   SESAPI
	From     string
	Renderer *Renderer
}

var _ Transport = (*SESSender)(nil)

// NewSESSender loads AWS credentials from the default chain.
func NewSESSender(ctx context.Context, region, from string, renderer *Renderer) (*SESSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return &SESSender{
		Client:   ses.NewFromConfig(awsCfg),
		From:     from,
		Renderer: renderer,
	}, nil
}

func (s *SESSender) Send(ctx context.Context, recipient string, data models.TemplateData) error {
	body, err := s.Renderer.Render(data)
	if err != nil {
		return err
	}

	_, err = s.Client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(s.Renderer.Subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(s.From),
	})
	if err != nil {
		return fmt.Errorf("ses send error: %w", err)
	}

	return nil
}

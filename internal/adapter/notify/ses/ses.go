// Package ses emails petitioners when their evaluation completes.
package ses

import (
	"context"
	"fmt"
	"html"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/fairyhunter13/ai-petition-evaluator/internal/config"
	"github.com/fairyhunter13/ai-petition-evaluator/internal/domain"
)

// Sender is satisfied by *sesv2.Client.
type Sender interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Notifier implements domain.Notifier over SES.
type Notifier struct {
	client      Sender
	fromAddress string
	fromName    string
	baseURL     string
}

// New loads AWS configuration for the SES region.
func New(ctx context.Context, cfg config.Config) (*Notifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SESRegion))
	if err != nil {
		return nil, fmt.Errorf("op=ses.New: loading aws config: %w", err)
	}
	return NewWithClient(sesv2.NewFromConfig(awsCfg), cfg.SESFromAddress, cfg.SESFromName, cfg.PublicBaseURL), nil
}

func NewWithClient(client Sender, fromAddress, fromName, baseURL string) *Notifier {
	return &Notifier{client: client, fromAddress: fromAddress, fromName: fromName, baseURL: strings.TrimRight(baseURL, "/")}
}

// EvaluationCompleted sends the summary to job.NotifyEmail. Jobs without an
// address are skipped.
func (n *Notifier) EvaluationCompleted(ctx domain.Context, job domain.Job, res domain.Result) error {
	if job.NotifyEmail == "" {
		return nil
	}
	link := fmt.Sprintf("%s/v1/evaluations/%s", n.baseURL, job.ID)
	subject := fmt.Sprintf("%s petition evaluation: %s (%d/100)", res.VisaType, res.Report.OverallRating, res.Report.OverallScore)
	textBody := buildText(res, link)
	htmlBody := buildHTML(res, link)
	from := fmt.Sprintf("%s <%s>", n.fromName, n.fromAddress)

	_, err := n.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &from,
		Destination:      &types.Destination{ToAddresses: []string{job.NotifyEmail}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &subject},
				Body: &types.Body{
					Html: &types.Content{Data: &htmlBody},
					Text: &types.Content{Data: &textBody},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("op=ses.EvaluationCompleted: %w", err)
	}
	return nil
}

func buildText(res domain.Result, link string) string {
	r := res.Report
	var b strings.Builder
	fmt.Fprintf(&b, "Your %s petition evaluation is ready.\n\n", res.VisaType)
	fmt.Fprintf(&b, "Overall score: %d/100 (%s)\n", r.OverallScore, r.OverallRating)
	fmt.Fprintf(&b, "Approval %d%%, RFE %d%%, denial risk %d%%\n", r.ApprovalProbability, r.RFEProbability, r.DenialRisk)
	if len(r.Recommendations.Critical) > 0 {
		b.WriteString("\nCritical before filing:\n")
		for _, c := range r.Recommendations.Critical {
			b.WriteString("- " + c + "\n")
		}
	}
	fmt.Fprintf(&b, "\nFull report: %s\n", link)
	return b.String()
}

func buildHTML(res domain.Result, link string) string {
	r := res.Report
	var crit strings.Builder
	for _, c := range r.Recommendations.Critical {
		crit.WriteString("<li>" + html.EscapeString(c) + "</li>")
	}
	critBlock := ""
	if crit.Len() > 0 {
		critBlock = "<p><strong>Critical before filing:</strong></p><ul>" + crit.String() + "</ul>"
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">%s petition evaluation</h2>
  <p>Overall score <strong>%d/100</strong> (%s)</p>
  <p>Approval %d%%, RFE %d%%, denial risk %d%%</p>
  %s
  <p><a href="%s">View the full report</a></p>
</body>
</html>`, html.EscapeString(res.VisaType), r.OverallScore, html.EscapeString(r.OverallRating),
		r.ApprovalProbability, r.RFEProbability, r.DenialRisk, critBlock, html.EscapeString(link))
}

package domain

// CampaignTemplate is generated or fetched per run and never cached.
type CampaignTemplate struct {
	ID         string `json:"id"`
	TemplateID int    `json:"templateId"`
	Subject    string `json:"subject"`
	Body       string `json:"message"`
}

// EmailTemplateReEngagement is the template kind sent to at-risk users.
const EmailTemplateReEngagement = "re-engagement"

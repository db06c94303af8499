package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qaforge/qaforge/internal/pipeline"
	"github.com/qaforge/qaforge/internal/services"
)

// Webhook handlers acknowledge fast and run pipelines in the background.
// Anything that does not match the trigger conditions is acknowledged as
// ignored so the sender does not retry.

func ignored(c *gin.Context, reason string) {
	c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": reason})
}

func (h *Handlers) queuePipeline(issueID, actor string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.asyncWait)
		defer cancel()
		req := pipeline.Request{
			IssueID:     issueID,
			UserID:      actor,
			GenerateAC:  true,
			GenerateTst: true,
			Publish:     true,
		}
		if _, err := h.orch.Run(ctx, req); err != nil {
			h.log.Error().Err(err).Str("issue", issueID).Msg("webhook pipeline failed to start")
		}
	}()
}

func (h *Handlers) projectAllowed(project string) bool {
	if len(h.webhookProjects) == 0 {
		return true
	}
	for _, p := range h.webhookProjects {
		if p == project {
			return true
		}
	}
	return false
}

type jiraWebhookPayload struct {
	WebhookEvent string `json:"webhookEvent"`
	Issue        struct {
		Key    string `json:"key"`
		Fields struct {
			Project struct {
				Key string `json:"key"`
			} `json:"project"`
			IssueType struct {
				Name string `json:"name"`
			} `json:"issuetype"`
		} `json:"fields"`
	} `json:"issue"`
}

func (h *Handlers) JiraWebhook(c *gin.Context) {
	var p jiraWebhookPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		ignored(c, "unparseable payload")
		return
	}
	if p.WebhookEvent != "jira:issue_created" {
		ignored(c, "event "+p.WebhookEvent)
		return
	}
	if p.Issue.Key == "" {
		ignored(c, "no issue key")
		return
	}
	if !h.projectAllowed(p.Issue.Fields.Project.Key) {
		ignored(c, "project not watched")
		return
	}
	h.queuePipeline(p.Issue.Key, "webhook:jira")
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "issue_id": p.Issue.Key})
}

type azureWebhookPayload struct {
	EventType string `json:"eventType"`
	Resource  struct {
		ID int `json:"id"`
	} `json:"resource"`
}

func (h *Handlers) AzureWebhook(c *gin.Context) {
	var p azureWebhookPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		ignored(c, "unparseable payload")
		return
	}
	if p.EventType != "workitem.created" {
		ignored(c, "event "+p.EventType)
		return
	}
	if p.Resource.ID == 0 {
		ignored(c, "no work item id")
		return
	}
	issueID := "ADO-" + strconv.Itoa(p.Resource.ID)
	h.queuePipeline(issueID, "webhook:azure")
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "issue_id": issueID})
}

type githubWebhookPayload struct {
	Action string `json:"action"`
	Issue  struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
	} `json:"issue"`
}

// GitHubWebhook reacts to newly opened issues. GitHub issues have no ticket
// backend behind them, so the issue text is treated as a raw story and only
// acceptance criteria are generated.
func (h *Handlers) GitHubWebhook(c *gin.Context) {
	if c.GetHeader("X-GitHub-Event") != "issues" {
		ignored(c, "event "+c.GetHeader("X-GitHub-Event"))
		return
	}
	var p githubWebhookPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		ignored(c, "unparseable payload")
		return
	}
	if p.Action != "opened" {
		ignored(c, "action "+p.Action)
		return
	}
	if p.Issue.Title == "" {
		ignored(c, "no issue title")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.asyncWait)
		defer cancel()
		req := services.ACRequest{
			StoryRef: services.StoryRef{Title: p.Issue.Title, Description: p.Issue.Body},
			UserID:   "webhook:github",
		}
		if _, err := h.gen.GenerateAcceptanceCriteria(ctx, req); err != nil {
			h.log.Error().Err(err).Int("issue", p.Issue.Number).Msg("webhook acceptance-criteria generation failed")
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "issue": p.Issue.Number})
}

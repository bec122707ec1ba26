// Package jira implements the issue tracker port against the JIRA REST API.
package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/planforge/planforge/internal/config"
	"github.com/planforge/planforge/internal/domain"
	"github.com/planforge/planforge/internal/domain/issue"
	"github.com/planforge/planforge/internal/resilience"
)

// Client fetches issues from a JIRA instance using basic auth.
type Client struct {
	baseURL string
	email   string
	token   string
	http    *http.Client
	breaker *resilience.Breaker
}

// New creates a JIRA client from configuration.
func New(cfg config.Jira, breaker *resilience.Breaker) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		email:   cfg.Email,
		token:   cfg.APIToken,
		http:    &http.Client{Timeout: 30 * time.Second},
		breaker: breaker,
	}
}

type issueResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		IssueType   struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Priority struct {
			Name string `json:"name"`
		} `json:"priority"`
		DueDate    string `json:"duedate"`
		IssueLinks []struct {
			Type struct {
				Name string `json:"name"`
			} `json:"type"`
			InwardIssue *struct {
				Key string `json:"key"`
			} `json:"inwardIssue"`
			OutwardIssue *struct {
				Key string `json:"key"`
			} `json:"outwardIssue"`
		} `json:"issuelinks"`
	} `json:"fields"`
}

// GetIssue fetches a single issue by key.
func (c *Client) GetIssue(ctx context.Context, key string) (*issue.Issue, error) {
	var resp issueResponse
	err := c.breaker.Execute(func() error {
		return c.get(ctx, "/rest/api/2/issue/"+url.PathEscape(key), &resp)
	})
	if err != nil {
		return nil, err
	}

	iss := &issue.Issue{
		Key:         resp.Key,
		Summary:     resp.Fields.Summary,
		Description: resp.Fields.Description,
		IssueType:   resp.Fields.IssueType.Name,
		Priority:    resp.Fields.Priority.Name,
		DueDate:     resp.Fields.DueDate,
	}
	for _, l := range resp.Fields.IssueLinks {
		link := issue.Link{Type: l.Type.Name}
		if l.InwardIssue != nil {
			link.InwardIssue = l.InwardIssue.Key
		}
		if l.OutwardIssue != nil {
			link.OutwardIssue = l.OutwardIssue.Key
		}
		iss.Links = append(iss.Links, link)
	}
	return iss, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("jira request: %w", err)
	}
	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("jira call: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("jira issue: %w", domain.ErrNotFound)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("jira status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("jira decode: %w", err)
	}
	return nil
}

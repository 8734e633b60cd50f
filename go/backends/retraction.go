package backends

import (
	"context"
	"fmt"

	"github.com/araddon/dateparse"
	"github.com/segmentio/encoding/json"

	"github.com/slub/hallucinator/go/engine"
)

// CrossRefRetractor implements engine.Retractor against CrossRef's
// update-to relations, the same field CrossRefBackend.Query already parses
// for its own result's Retraction. It is a separate, focused lookup so the
// retraction probe (run only after a reference verifies) doesn't depend on
// the verifying backend having been CrossRef.
type CrossRefRetractor struct {
	Mailto string
	// BaseURL overrides https://api.crossref.org for testing.
	BaseURL string
}

func (r *CrossRefRetractor) baseURL() string {
	if r.BaseURL != "" {
		return r.BaseURL
	}
	return "https://api.crossref.org"
}

func (r *CrossRefRetractor) CheckDOI(ctx context.Context, doi string) (*engine.RetractionInfo, error) {
	if doi == "" {
		return nil, nil
	}
	u := r.baseURL() + "/works/" + doi
	if r.Mailto != "" {
		u += "?mailto=" + queryEscape(r.Mailto)
	}
	body, err := getJSON(ctx, u, nil, DefaultUserAgent)
	if err != nil {
		if isNotFoundErr(err) {
			return nil, nil
		}
		return nil, err
	}

	var parsed struct {
		Message crossrefWork `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("crossref retractor: unmarshal: %w", err)
	}
	return retractionFromUpdates(parsed.Message.UpdateTo), nil
}

func (r *CrossRefRetractor) CheckTitle(ctx context.Context, title string) (*engine.RetractionInfo, error) {
	u := fmt.Sprintf("%s/works?query.bibliographic=%s&rows=1", r.baseURL(), queryEscape(title))
	if r.Mailto != "" {
		u += "&mailto=" + queryEscape(r.Mailto)
	}
	body, err := getJSON(ctx, u, nil, DefaultUserAgent)
	if err != nil {
		return nil, err
	}

	var parsed crossrefResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("crossref retractor: unmarshal: %w", err)
	}
	if len(parsed.Message.Items) == 0 {
		return nil, nil
	}
	return retractionFromUpdates(parsed.Message.Items[0].UpdateTo), nil
}

func retractionFromUpdates(updates []crossrefUpdate) *engine.RetractionInfo {
	for _, upd := range updates {
		if upd.Type != "retraction" {
			continue
		}
		reason := "retraction notice published"
		// CrossRef's update-to.updated.date-time is usually RFC3339, but
		// dateparse tolerates the occasional non-conforming variant instead
		// of failing the whole probe over a cosmetic timestamp.
		if upd.Updated.DateTime != "" {
			if t, err := dateparse.ParseAny(upd.Updated.DateTime); err == nil {
				reason = fmt.Sprintf("retracted (%s)", t.Format("2006-01-02"))
			}
		}
		return &engine.RetractionInfo{IsRetracted: true, RetractionDOI: upd.DOI, Reason: reason}
	}
	return nil
}

package bitbucket

import (
	"strconv"
	"strings"

	"github.com/ericfisherdev/prstatus/internal/domain/model"
)

// Wire shapes of the Bitbucket Server REST API (1.0).

type serverPullRequestJSON struct {
	ID     int64                 `json:"id"`
	Title  string                `json:"title"`
	State  string                `json:"state"`
	Author serverParticipantJSON `json:"author"`
	From   serverRefJSON         `json:"fromRef"`
	To     serverRefJSON         `json:"toRef"`
}

type serverRefJSON struct {
	ID           string               `json:"id"`
	DisplayID    string               `json:"displayId"`
	LatestCommit string               `json:"latestCommit"`
	Repository   serverRepositoryJSON `json:"repository"`
}

type serverRepositoryJSON struct {
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	Project struct {
		Key string `json:"key"`
	} `json:"project"`
	Links struct {
		Clone []linkJSON `json:"clone"`
	} `json:"links"`
}

type serverUserJSON struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type serverParticipantJSON struct {
	User     serverUserJSON `json:"user"`
	Role     string         `json:"role"`
	Approved bool           `json:"approved"`
}

type serverActivityJSON struct {
	ID      int64              `json:"id"`
	Action  string             `json:"action"`
	Comment *serverCommentJSON `json:"comment,omitempty"`
}

type serverCommentJSON struct {
	ID     int64           `json:"id,omitempty"`
	Text   string          `json:"text"`
	Author *serverUserJSON `json:"author,omitempty"`
}

// isComment reports whether the activity is a comment. Other activities
// (approvals, rescopes, updates) carry no comment text.
func (a serverActivityJSON) isComment() bool {
	action := strings.ToUpper(a.Action)
	return a.Comment != nil && (action == "COMMENTED" || action == "COMMENT")
}

func (a serverActivityJSON) toComment(prID string) model.Comment {
	return a.Comment.toModel(prID)
}

func (c serverCommentJSON) toModel(prID string) model.Comment {
	comment := model.Comment{
		ID:            c.ID,
		PullRequestID: prID,
		Content:       c.Text,
	}
	if c.Author != nil {
		comment.Author = &model.Participant{Name: c.Author.Name, DisplayName: c.Author.DisplayName}
	}
	return comment
}

func (pr serverPullRequestJSON) toModel() model.PullRequest {
	return model.PullRequest{
		Variant:     model.VariantServer,
		ID:          strconv.FormatInt(pr.ID, 10),
		Title:       pr.Title,
		State:       pr.State,
		Author:      pr.Author.User.Name,
		Source:      pr.From.toModel(),
		Destination: pr.To.toModel(),
	}
}

func (r serverRefJSON) toModel() model.Ref {
	branch := r.DisplayID
	if branch == "" {
		branch = strings.TrimPrefix(r.ID, "refs/heads/")
	}
	return model.Ref{
		Branch:     branch,
		Commit:     r.LatestCommit,
		Repository: r.Repository.toModel(),
	}
}

func (r serverRepositoryJSON) toModel() model.Repository {
	return model.Repository{
		Owner:    r.Project.Key,
		Name:     r.Slug,
		FullName: r.Project.Key + "/" + r.Slug,
		Links:    mapLinks(r.Links.Clone),
	}
}

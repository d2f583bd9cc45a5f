package bitbucket

import (
	"strconv"
	"strings"

	"github.com/ericfisherdev/prstatus/internal/domain/model"
)

// Wire shapes of the Bitbucket Cloud 2.0 API.

type cloudPullRequestJSON struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	State       string        `json:"state"`
	Author      cloudUserJSON `json:"author"`
	Source      cloudRefJSON  `json:"source"`
	Destination cloudRefJSON  `json:"destination"`
}

type cloudRefJSON struct {
	Branch struct {
		Name string `json:"name"`
	} `json:"branch"`
	Commit struct {
		Hash string `json:"hash"`
	} `json:"commit"`
	Repository cloudRepositoryJSON `json:"repository"`
}

type cloudRepositoryJSON struct {
	FullName string `json:"full_name"`
	Name     string `json:"name"`
	Links    struct {
		Clone []linkJSON `json:"clone,omitempty"`
	} `json:"links"`
}

type cloudUserJSON struct {
	DisplayName string `json:"display_name,omitempty"`
	Nickname    string `json:"nickname,omitempty"`
	AccountID   string `json:"account_id,omitempty"`
}

type cloudParticipantJSON struct {
	User     cloudUserJSON `json:"user"`
	Role     string        `json:"role"`
	Approved bool          `json:"approved"`
}

type cloudCommentJSON struct {
	ID      int64 `json:"id,omitempty"`
	Content struct {
		Raw string `json:"raw"`
	} `json:"content"`
	User    *cloudUserJSON `json:"user,omitempty"`
	Deleted bool           `json:"deleted,omitempty"`
}

func (u cloudUserJSON) login() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.AccountID
}

func (p cloudParticipantJSON) toModel() model.Participant {
	return model.Participant{
		Name:        p.User.login(),
		DisplayName: p.User.DisplayName,
		Role:        p.Role,
		Approved:    p.Approved,
	}
}

func (c cloudCommentJSON) toModel(prID string) model.Comment {
	comment := model.Comment{
		ID:            c.ID,
		PullRequestID: prID,
		Content:       c.Content.Raw,
	}
	if c.User != nil {
		comment.Author = &model.Participant{Name: c.User.login(), DisplayName: c.User.DisplayName}
	}
	return comment
}

func (pr cloudPullRequestJSON) toModel() model.PullRequest {
	return model.PullRequest{
		Variant:     model.VariantCloud,
		ID:          strconv.FormatInt(pr.ID, 10),
		Title:       pr.Title,
		State:       pr.State,
		Author:      pr.Author.login(),
		Source:      pr.Source.toModel(),
		Destination: pr.Destination.toModel(),
	}
}

func (r cloudRefJSON) toModel() model.Ref {
	return model.Ref{
		Branch:     r.Branch.Name,
		Commit:     r.Commit.Hash,
		Repository: r.Repository.toModel(),
	}
}

func (r cloudRepositoryJSON) toModel() model.Repository {
	owner, name, ok := strings.Cut(r.FullName, "/")
	if !ok {
		owner, name = "", r.Name
	}
	return model.Repository{
		Owner:    owner,
		Name:     name,
		FullName: r.FullName,
		Links:    mapLinks(r.Links.Clone),
	}
}

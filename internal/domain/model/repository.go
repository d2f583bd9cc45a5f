package model

// Repository identifies a Bitbucket repository. Owner is the workspace (Cloud)
// or project key (Server); Name is the repository slug.
type Repository struct {
	Owner    string
	Name     string
	FullName string
	Links    RepositoryLinks
}

// RepositoryLinks holds the named clone URLs of a repository.
type RepositoryLinks struct {
	Clone []Link
}

// Link is a single named URL, e.g. {"ssh", "ssh://git@host/proj/repo.git"}.
type Link struct {
	Name string
	Href string
}

// IsEmpty reports whether no clone links are present.
func (l RepositoryLinks) IsEmpty() bool {
	return len(l.Clone) == 0
}

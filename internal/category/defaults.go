// Package category assigns categories to tool names without calling a classifier.
package category

import "github.com/vietddude/toolfilter/internal/core/domain"

// Group is a category together with the patterns that select it.
type Group struct {
	Category string
	Patterns []string
}

// Defaults is the built-in pattern table. Order matters: the first group with a
// matching pattern wins, so "*__query" resolves to search before database.
var Defaults = []Group{
	{domain.CategoryFilesystem, []string{
		"filesystem__*", "files__*",
		"*__read", "*__write", "*__list", "*__delete", "*__move", "*__copy",
	}},
	{domain.CategoryWeb, []string{
		"fetch__*", "http__*", "browser__*", "playwright__*", "puppeteer__*",
		"*__request", "*__download",
	}},
	{domain.CategorySearch, []string{
		"brave__*", "tavily__*", "google__*", "*__search", "*__query",
	}},
	{domain.CategoryDatabase, []string{
		"postgres__*", "mysql__*", "mongo__*", "sqlite__*",
		"*__query", "*__execute", "db__*",
	}},
	{domain.CategoryVersionControl, []string{
		"github__*", "gitlab__*", "git__*", "*__commit", "*__push", "*__pull",
	}},
	{domain.CategoryDocker, []string{
		"docker__*", "container__*", "kubernetes__*", "k8s__*",
	}},
	{domain.CategoryCloud, []string{
		"aws__*", "gcp__*", "azure__*", "s3__*", "ec2__*",
	}},
	{domain.CategoryDevelopment, []string{
		"npm__*", "pip__*", "cargo__*", "compiler__*", "linter__*", "formatter__*", "test__*",
	}},
	{domain.CategoryCommunication, []string{
		"slack__*", "email__*", "discord__*", "teams__*", "*__send", "*__notify",
	}},
}

// AutoEnableCategories are allowed when filtering switches itself on.
var AutoEnableCategories = []string{
	domain.CategoryFilesystem,
	domain.CategoryWeb,
	domain.CategorySearch,
	domain.CategoryDevelopment,
}

// Labels returns the candidate labels offered to a classifier: every built-in
// category in table order followed by "other".
func Labels() []string {
	labels := make([]string, 0, len(Defaults)+1)
	for _, g := range Defaults {
		labels = append(labels, g.Category)
	}
	return append(labels, domain.CategoryOther)
}

// IsLabel reports whether label is one of candidates.
func IsLabel(label string, candidates []string) bool {
	for _, c := range candidates {
		if c == label {
			return true
		}
	}
	return false
}

package services

import "errors"

var (
	ErrProjectNotFound      = errors.New("project not found")
	ErrIssueNotFound        = errors.New("issue not found")
	ErrAmbiguousIssuePrefix = errors.New("issue id prefix matches more than one issue")
	ErrInvalidTransition    = errors.New("invalid issue status transition")
	ErrForbidden            = errors.New("you do not have access to this project")
	ErrAnalysisInProgress   = errors.New("analysis already running for this project")
	ErrNoCodeFiles          = errors.New("no code files found in repository")
	ErrNoCodeChange         = errors.New("fix generator returned no code change")
)

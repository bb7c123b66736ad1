package pullrequest

import (
	"net/url"
	"strings"
)

// BitbucketHost is the only remote host pull requests can be created on.
const BitbucketHost = "bitbucket.org"

// ParseRemote extracts the workspace and repository slug from a Bitbucket
// remote URL. It accepts scp-style ssh (git@bitbucket.org:ws/repo.git),
// ssh:// and https:// forms.
func ParseRemote(remote string) (workspace, slug string, ok bool) {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return "", "", false
	}

	var host, path string
	if strings.Contains(remote, "://") {
		u, err := url.Parse(remote)
		if err != nil {
			return "", "", false
		}
		host = u.Hostname()
		path = u.Path
	} else {
		// scp-style: [user@]host:path
		at := strings.LastIndex(remote, "@")
		colon := strings.Index(remote, ":")
		if colon < 0 || colon < at {
			return "", "", false
		}
		host = remote[at+1 : colon]
		path = remote[colon+1:]
	}

	if !strings.EqualFold(host, BitbucketHost) {
		return "", "", false
	}

	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

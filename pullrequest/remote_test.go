package pullrequest

import "testing"

func TestParseRemote(t *testing.T) {
	tests := []struct {
		remote    string
		workspace string
		slug      string
		ok        bool
	}{
		{"git@bitbucket.org:acme/widgets.git", "acme", "widgets", true},
		{"git@bitbucket.org:acme/widgets", "acme", "widgets", true},
		{"ssh://git@bitbucket.org/acme/widgets.git", "acme", "widgets", true},
		{"https://jdoe@bitbucket.org/acme/widgets.git", "acme", "widgets", true},
		{"https://bitbucket.org/acme/widgets/", "acme", "widgets", true},
		{"  https://BitBucket.org/acme/widgets.git\n", "acme", "widgets", true},
		{"git@github.com:acme/widgets.git", "", "", false},
		{"https://bitbucket.org/acme", "", "", false},
		{"https://bitbucket.org/acme/widgets/src/main", "", "", false},
		{"/srv/git/widgets.git", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		ws, slug, ok := ParseRemote(tt.remote)
		if ws != tt.workspace || slug != tt.slug || ok != tt.ok {
			t.Errorf("ParseRemote(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.remote, ws, slug, ok, tt.workspace, tt.slug, tt.ok)
		}
	}
}

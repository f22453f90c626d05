package main

import "testing"

func TestParseChannelURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		url      string
		wantBase string
		wantTeam string
		wantChan string
		wantErr  bool
	}{
		{
			name:     "plain channel url",
			url:      "https://mattermost.example.com/myteam/channels/general",
			wantBase: "https://mattermost.example.com",
			wantTeam: "myteam",
			wantChan: "general",
		},
		{
			name:     "trailing slash",
			url:      "https://mattermost.example.com/myteam/channels/general/",
			wantBase: "https://mattermost.example.com",
			wantTeam: "myteam",
			wantChan: "general",
		},
		{
			name:     "http with port",
			url:      "http://localhost:8065/team-a/channels/town-square",
			wantBase: "http://localhost:8065",
			wantTeam: "team-a",
			wantChan: "town-square",
		},
		{
			name:    "missing channels segment",
			url:     "https://mattermost.example.com/myteam/general",
			wantErr: true,
		},
		{
			name:    "not a url",
			url:     "general",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			base, team, channel, err := parseChannelURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseChannelURL(%q) returned error: %v", tt.url, err)
			}
			if base != tt.wantBase || team != tt.wantTeam || channel != tt.wantChan {
				t.Errorf("parseChannelURL(%q) = (%q, %q, %q)", tt.url, base, team, channel)
			}
		})
	}
}

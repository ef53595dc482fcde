package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionFromToken(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantRegion Region
		wantToken  string
	}{
		{"国内版トークン", "abc123", RegionDomestic, "abc123"},
		{"国際版トークン", "us-abc123", RegionInternational, "abc123"},
		{"大文字のプレフィックス", "US-abc123", RegionInternational, "abc123"},
		{"前後の空白は除去", "  xyz  ", RegionDomestic, "xyz"},
		{"途中の us- は無関係", "abcus-123", RegionDomestic, "abcus-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			region, token := RegionFromToken(tt.raw)
			assert.Equal(t, tt.wantRegion, region)
			assert.Equal(t, tt.wantToken, token)
		})
	}
}

func TestNewCredential(t *testing.T) {
	c := NewCredential(7, "alice@example.com", "us-deadbeef")

	assert.Equal(t, int64(7), c.ID)
	assert.Equal(t, RegionInternational, c.Region)
	assert.Equal(t, "deadbeef", c.Token)
	assert.NotContains(t, c.String(), "deadbeef", "String() must not leak the token")
}

func TestCredential_SessionToken(t *testing.T) {
	t.Run("Token を優先する", func(t *testing.T) {
		c := Credential{Token: "t1", Cookies: CookieJar{{Name: "sessionid", Value: "c1"}}}
		assert.Equal(t, "t1", c.SessionToken())
	})

	t.Run("Token が空なら Cookie の sessionid を使う", func(t *testing.T) {
		c := Credential{Cookies: CookieJar{{Name: "msToken", Value: "x"}, {Name: "sessionid", Value: "c1"}}}
		assert.Equal(t, "c1", c.SessionToken())
	})

	t.Run("どちらも無ければ空", func(t *testing.T) {
		assert.Equal(t, "", Credential{}.SessionToken())
	})
}

func TestCookieJar_Merge(t *testing.T) {
	jar := CookieJar{
		{Name: "sessionid", Value: "old", Domain: ".jianying.com", Path: "/"},
		{Name: "msToken", Value: "m1", Domain: ".jianying.com", Path: "/"},
	}

	merged := jar.Merge([]Cookie{
		{Name: "sessionid", Value: "new", Domain: ".jianying.com", Path: "/"},
		{Name: "ttwid", Value: "w1", Domain: ".jianying.com", Path: "/"},
	})

	require.Len(t, merged, 3)
	got, ok := merged.Get("sessionid")
	require.True(t, ok)
	assert.Equal(t, "new", got.Value)
	_, ok = merged.Get("ttwid")
	assert.True(t, ok)

	// 元の Jar は変更しない
	orig, _ := jar.Get("sessionid")
	assert.Equal(t, "old", orig.Value)
}

func TestParseCredentialLine(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantUser  string
		wantToken string
		wantOK    bool
		wantErr   bool
	}{
		{"空行", "   ", "", "", false, false},
		{"コメント", "# comment", "", "", false, false},
		{"ユーザー名付き", "bob@example.com----tok123", "bob@example.com", "tok123", true, false},
		{"国際版ユーザー名付き", "carol----us-tok456", "carol", "us-tok456", true, false},
		{"トークンのみ", "abcdefghijk", "token-ca2f2069", "abcdefghijk", true, false},
		{"先頭が同じでも別の名前", "abcdef0123BBBB", "token-8f713010", "abcdef0123BBBB", true, false},
		{"トークンが空", "dave----", "", "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, token, ok, err := ParseCredentialLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantUser, user)
			assert.Equal(t, tt.wantToken, token)
		})
	}

	t.Run("表示名はトークン全体から決まり秘密を含まない", func(t *testing.T) {
		a, _, _, err := ParseCredentialLine("abcdef0123AAAA")
		require.NoError(t, err)
		b, _, _, err := ParseCredentialLine("abcdef0123BBBB")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
		assert.NotContains(t, a, "abcdef01")
	})
}

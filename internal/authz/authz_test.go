package authz

import (
	"testing"

	"marginalia/api/internal/store"
)

func TestAuthorize(t *testing.T) {
	perms := store.Permissions{
		Read:   []string{WorldGroup},
		Update: []string{"acct:alice@x"},
		Delete: []string{"acct:alice@x"},
	}
	flags := Flags{FlaggingEnabled: true, SharingEnabled: true}

	cases := []struct {
		name   string
		viewer string
		want   Decision
	}{
		{
			name:   "author",
			viewer: "acct:alice@x",
			want:   Decision{CanEdit: true, CanDelete: true, CanFlag: false, CanShare: true},
		},
		{
			name:   "other signed-in viewer",
			viewer: "acct:bob@x",
			want:   Decision{CanEdit: false, CanDelete: false, CanFlag: true, CanShare: true},
		},
		{
			name:   "anonymous viewer",
			viewer: "",
			want:   Decision{CanEdit: false, CanDelete: false, CanFlag: false, CanShare: true},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Authorize(perms, "acct:alice@x", tc.viewer, flags)
			if got != tc.want {
				t.Fatalf("Authorize() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestAuthorizeWorldGranted(t *testing.T) {
	perms := store.Permissions{
		Update: []string{WorldGroup},
		Delete: []string{"acct:alice@x"},
	}
	got := Authorize(perms, "acct:alice@x", "acct:bob@x", Flags{})
	if !got.CanEdit {
		t.Fatal("world-granted update must permit any viewer")
	}
	if got.CanDelete {
		t.Fatal("delete must stay restricted to the listed principal")
	}
}

func TestAuthorizeFlaggingDisabled(t *testing.T) {
	perms := store.Permissions{}
	got := Authorize(perms, "acct:alice@x", "acct:bob@x", Flags{FlaggingEnabled: false, SharingEnabled: true})
	if got.CanFlag {
		t.Fatal("flagging disabled by config must deny CanFlag")
	}
}

func TestAuthorizeEmptyPermissions(t *testing.T) {
	got := Authorize(store.Permissions{}, "", "", Flags{})
	if got != (Decision{}) {
		t.Fatalf("empty inputs must yield all-deny, got %+v", got)
	}
}

func TestCanRead(t *testing.T) {
	cases := []struct {
		name   string
		perms  store.Permissions
		viewer string
		want   bool
	}{
		{name: "world readable", perms: store.Permissions{Read: []string{WorldGroup}}, viewer: "", want: true},
		{name: "listed principal", perms: store.Permissions{Read: []string{"acct:bob@x"}}, viewer: "acct:bob@x", want: true},
		{name: "unlisted principal", perms: store.Permissions{Read: []string{"acct:bob@x"}}, viewer: "acct:carol@x", want: false},
		{name: "anonymous without world", perms: store.Permissions{Read: []string{"acct:bob@x"}}, viewer: "", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanRead(tc.perms, tc.viewer); got != tc.want {
				t.Fatalf("CanRead() = %v, want %v", got, tc.want)
			}
		})
	}
}

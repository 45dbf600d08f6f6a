package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer write", role: RoleViewer, action: ActionWrite, allow: false},
		{name: "viewer comment", role: RoleViewer, action: ActionComment, allow: false},
		{name: "reviewer read", role: RoleReviewer, action: ActionRead, allow: true},
		{name: "reviewer comment", role: RoleReviewer, action: ActionComment, allow: true},
		{name: "reviewer approve", role: RoleReviewer, action: ActionApprove, allow: true},
		{name: "reviewer write", role: RoleReviewer, action: ActionWrite, allow: false},
		{name: "editor write", role: RoleEditor, action: ActionWrite, allow: true},
		{name: "editor approve", role: RoleEditor, action: ActionApprove, allow: false},
		{name: "admin approve", role: RoleAdmin, action: ActionApprove, allow: true},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "unknown role", role: Role("ghost"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want Role
	}{
		{in: "editor", want: RoleEditor},
		{in: "reviewer", want: RoleReviewer},
		{in: "admin", want: RoleAdmin},
		{in: "", want: RoleViewer},
		{in: "superuser", want: RoleViewer},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

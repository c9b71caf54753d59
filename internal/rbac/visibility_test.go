package rbac

import (
	"reflect"
	"testing"

	"sikap/api/internal/store"
)

func TestVisibleArchives(t *testing.T) {
	folder := store.Folder{ID: 10, OwnerID: 1}
	archives := []store.Archive{
		{ID: 100, UploaderID: 1},
		{ID: 101, UploaderID: 2},
		{ID: 102, UploaderID: 1, SharedWith: []int64{3}},
		{ID: 103, UploaderID: 3, SharedWith: []int64{2}},
	}

	cases := []struct {
		name string
		p    Principal
		want []int64
	}{
		{name: "owner sees all", p: Principal{UserID: 1, Role: RoleViewer}, want: []int64{100, 101, 102, 103}},
		{name: "admin sees all", p: Principal{UserID: 7, Role: RoleAdmin}, want: []int64{100, 101, 102, 103}},
		{name: "uploader sees own and shared", p: Principal{UserID: 2, Role: RoleEditor}, want: []int64{101, 103}},
		{name: "shared user sees shared and own", p: Principal{UserID: 3, Role: RoleViewer}, want: []int64{102, 103}},
		{name: "stranger sees nothing", p: Principal{UserID: 4, Role: RoleViewer}, want: []int64{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := VisibleArchives(folder, archives, tc.p)
			ids := make([]int64, 0, len(got))
			for _, archive := range got {
				if archive.SharedWith != nil {
					t.Fatalf("archive %d leaked share list %v", archive.ID, archive.SharedWith)
				}
				ids = append(ids, archive.ID)
			}
			if !reflect.DeepEqual(ids, tc.want) {
				t.Fatalf("VisibleArchives() = %v, want %v", ids, tc.want)
			}
		})
	}

	if archives[2].SharedWith == nil {
		t.Fatal("input archives must not be mutated")
	}
}

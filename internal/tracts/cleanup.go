package tracts

import (
	"context"
	"fmt"
	"strings"

	"github.com/EmpoweredVote/tract-census/internal/gis"
	"github.com/EmpoweredVote/tract-census/internal/messages"
)

// IsCensusField reports whether a destination field looks like one a previous
// run added: an underscore somewhere in its last two characters.
func IsCensusField(name string) bool {
	r := []rune(name)
	if len(r) > 2 {
		r = r[len(r)-2:]
	}
	return strings.ContainsRune(string(r), '_')
}

// CleanupFields drops the destination's previously added census fields. A
// failed delete is logged and the run carries on.
func CleanupFields(ctx context.Context, ws gis.Workspace, dest gis.Dataset) ([]string, error) {
	fields, err := ws.ListFields(ctx, dest)
	if err != nil {
		return nil, fmt.Errorf("list destination fields: %w", err)
	}

	var deleteList []string
	for _, f := range fields {
		if IsCensusField(f.Name) {
			deleteList = append(deleteList, f.Name)
		}
	}
	if len(deleteList) == 0 {
		return nil, nil
	}

	if err := ws.DeleteFields(ctx, dest, deleteList); err != nil {
		messages.LogError(component, "delete destination fields", err)
		return nil, nil
	}
	messages.LogStep(component, fmt.Sprintf("Deleted Fields: %v", deleteList))
	return deleteList, nil
}

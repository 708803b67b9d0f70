package project_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taskchain/taskchain/internal/project"
)

func TestNullProject(t *testing.T) {
	p := project.Null()
	assert.True(t, p.IsNull())
	assert.Equal(t, project.NoneName, p.Name)
	assert.False(t, p.Hidden)

	stored := &project.Project{ID: "01ARZ3NDEKTSV4RRFFQ69G5FAV", Name: "orchard"}
	assert.False(t, stored.IsNull())

	var absent *project.Project
	assert.True(t, absent.IsNull())
}

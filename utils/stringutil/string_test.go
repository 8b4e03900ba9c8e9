/*
Copyright © 2020 Marvin

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package stringutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringItemsFilter(t *testing.T) {
	assert.Equal(t, []string{"b", "c"}, StringItemsFilterIntersection([]string{"c", "a", "b"}, []string{"b", "c", "d"}))
	assert.Equal(t, []string{"a"}, StringItemsFilterDifference([]string{"c", "a", "b"}, []string{"b", "c", "d"}))
	assert.Empty(t, StringItemsFilterIntersection(nil, []string{"x"}))
}

func TestIsPositiveInteger(t *testing.T) {
	for s, want := range map[string]bool{"3": true, " 2 ": true, "0": false, "-1": false, "two": false, "": false, "2.5": false} {
		assert.Equal(t, want, IsPositiveInteger(s), s)
	}
}

func TestStringTitle(t *testing.T) {
	assert.Equal(t, "Start", StringTitle("start"))
	assert.Equal(t, "Reconfigure", StringTitle("reconfigure"))
}

func TestCopyDir(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "logs", "s1"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "logs", "s1", "a.log"), []byte("hello"), 0644))

	dst := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, CopyDir(src, dst))
	data, err := os.ReadFile(filepath.Join(dst, "logs", "s1", "a.log"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	require.Error(t, CopyDir(filepath.Join(src, "missing"), dst))
}

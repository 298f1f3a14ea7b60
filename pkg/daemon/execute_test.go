/*
Copyright The Volcano Authors.

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

package daemon

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_UnmarshalJSON_Array(t *testing.T) {
	var cmd Command
	require.NoError(t, json.Unmarshal([]byte(`["python3", "-c", "print(1)"]`), &cmd))
	assert.Equal(t, Command{"python3", "-c", "print(1)"}, cmd)
}

func TestCommand_UnmarshalJSON_String(t *testing.T) {
	var cmd Command
	require.NoError(t, json.Unmarshal([]byte(`"echo hi | wc -l"`), &cmd))
	assert.Equal(t, Command{"sh", "-c", "echo hi | wc -l"}, cmd)
}

func TestCommand_UnmarshalJSON_RejectsOtherTypes(t *testing.T) {
	var cmd Command
	assert.Error(t, json.Unmarshal([]byte(`42`), &cmd))
	assert.Error(t, json.Unmarshal([]byte(`{"foo":"bar"}`), &cmd))
}

// Copyright 2026 Slipway contributors
// SPDX-License-Identifier: Apache-2.0

package terraform

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewS3BackendConfigMarshal(t *testing.T) {
	t.Parallel()

	cfg := NewS3BackendConfig(S3BackendConfig{
		Region:    "eu-west-1",
		Bucket:    "demo-terraform-state",
		Key:       "demo/cluster.tfstate",
		LockTable: "demo-terraform-lock",
		Encrypt:   true,
	})

	data, err := json.Marshal(cfg)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	backend := decoded["terraform"].(map[string]interface{})["backend"].(map[string]interface{})
	s3 := backend["s3"].(map[string]interface{})
	assert.Equal(t, "demo-terraform-state", s3["bucket"])
	assert.Equal(t, "demo/cluster.tfstate", s3["key"])
	assert.Equal(t, "eu-west-1", s3["region"])
	assert.Equal(t, "demo-terraform-lock", s3["dynamodb_table"])
	assert.Equal(t, true, s3["encrypt"])
}

func TestS3BackendConfigOmitsEmptyLockTable(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(S3BackendConfig{Region: "eu-west-1", Bucket: "b", Key: "k"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dynamodb_table")
}

func TestExecContextAddFile(t *testing.T) {
	t.Parallel()

	workDir := filepath.Join(t.TempDir(), "tf")
	tec, err := NewExecContext(workDir, logr.Discard())
	require.NoError(t, err)

	require.NoError(t, tec.AddFile("config.tf.json", []byte(`{"terraform":{}}`)))

	data, err := os.ReadFile(filepath.Join(workDir, "config.tf.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"terraform":{}}`, string(data))
}

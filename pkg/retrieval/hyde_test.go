// Copyright 2026 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrieve_HyDEMeansQueryAndHypothetical(t *testing.T) {
	embedder := &stubEmbedder{
		vec:   []float32{1, 0},
		batch: [][]float32{{1, 0}, {0, 1}},
	}
	store := &stubStore{}
	provider := &stubProvider{text: "A hypothetical passage about the alpha migration."}

	eng := testEngine(t, embedder, store, nil, nil, provider)
	eng.cfg.HyDE = true

	_, err := eng.Retrieve(context.Background(), "alpha migration", Options{})
	require.NoError(t, err)

	// Both the query and the generated passage are embedded, and the
	// dense branch searches with their mean.
	require.Equal(t, 1, embedder.batchCalls)
	assert.Equal(t, []string{"alpha migration", "A hypothetical passage about the alpha migration."}, embedder.lastTexts)
	assert.Equal(t, []float32{0.5, 0.5}, store.lastVector)

	require.NotNil(t, provider.lastReq)
	assert.Contains(t, provider.lastReq.Prompt, "alpha migration")
	assert.Equal(t, 300, provider.lastReq.MaxTokens)
	require.NotNil(t, provider.lastReq.Temperature)
	assert.InDelta(t, 0.7, *provider.lastReq.Temperature, 1e-9)
}

func TestRetrieve_HyDEDegradesToPlainQuery(t *testing.T) {
	embedder := &stubEmbedder{vec: []float32{1, 0}}
	store := &stubStore{}
	provider := &stubProvider{err: assert.AnError}

	eng := testEngine(t, embedder, store, nil, nil, provider)
	eng.cfg.HyDE = true

	_, err := eng.Retrieve(context.Background(), "alpha migration", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, embedder.embedCalls)
	assert.Zero(t, embedder.batchCalls)
	assert.Equal(t, []float32{1, 0}, store.lastVector)
}

func TestRetrieve_HyDEWithoutRouterEmbedsPlainQuery(t *testing.T) {
	embedder := &stubEmbedder{vec: []float32{1, 0}}
	store := &stubStore{}

	eng := testEngine(t, embedder, store, nil, nil, nil)
	eng.cfg.HyDE = true

	_, err := eng.Retrieve(context.Background(), "alpha migration", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.embedCalls)
}

func TestRetrieve_HyDEOptionOverridesConfig(t *testing.T) {
	embedder := &stubEmbedder{vec: []float32{1, 0}}
	provider := &stubProvider{text: "hypothetical"}

	eng := testEngine(t, embedder, &stubStore{}, nil, nil, provider)
	eng.cfg.HyDE = true

	off := false
	_, err := eng.Retrieve(context.Background(), "alpha", Options{HyDE: &off})
	require.NoError(t, err)
	assert.Zero(t, provider.calls)
	assert.Equal(t, 1, embedder.embedCalls)

	eng.cfg.HyDE = false
	on := true
	_, err = eng.Retrieve(context.Background(), "alpha", Options{HyDE: &on})
	require.NoError(t, err)
	assert.Equal(t, 1, provider.calls)
}

func TestRetrieve_EmbedErrorIsFatal(t *testing.T) {
	embedder := &stubEmbedder{vec: []float32{1, 0}, err: assert.AnError}

	eng := testEngine(t, embedder, &stubStore{}, nil, nil, nil)

	_, err := eng.Retrieve(context.Background(), "alpha", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding query")
}

func TestMeanVector(t *testing.T) {
	assert.Nil(t, meanVector(nil))
	assert.Equal(t, []float32{1, 2}, meanVector([][]float32{{1, 2}}))
	assert.Equal(t, []float32{0.5, 0.5}, meanVector([][]float32{{1, 0}, {0, 1}}))

	// Mismatched dimensions fall back to the first vector.
	assert.Equal(t, []float32{1, 0}, meanVector([][]float32{{1, 0}, {1}}))
}

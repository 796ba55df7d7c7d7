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

package observability

const (
	AttrServiceName     = "service.name"
	AttrServiceVersion  = "service.version"
	AttrDocID           = "doc.id"
	AttrDocType         = "doc.type"
	AttrSourcePath      = "source.path"
	AttrChunkCount      = "chunk.count"
	AttrLLMProvider     = "llm.provider"
	AttrLLMModel        = "llm.model"
	AttrLLMOperation    = "llm.operation"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrResultCount     = "result.count"
	AttrErrorType       = "error.type"

	SpanIngest     = "sift.ingest"
	SpanExtract    = "sift.extract"
	SpanEnrich     = "sift.enrich"
	SpanChunk      = "sift.chunk"
	SpanEmbed      = "sift.embed"
	SpanSearch     = "sift.search"
	SpanAnswer     = "sift.answer"
	SpanLLMRequest = "sift.llm_request"

	DefaultServiceName = "sift"
)

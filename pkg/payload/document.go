// Copyright 2025 Tom Barlow
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

package payload

import "encoding/json"

// Document is one retrieved document normalized from a retriever's output.
type Document struct {
	Content      string
	MetadataJSON string
}

// ParseDocuments extracts retrieved documents from a retriever output
// payload's "documents" array. Non-object entries are filtered out
// silently. Document text is read from "page_content" or "pageContent";
// a metadata object, when present and encodable, is kept as JSON.
// Returns nil together with false when the payload has no documents array.
func ParseDocuments(output Map) ([]Document, bool) {
	raw, ok := GetSlice(output, "documents")
	if !ok {
		return nil, false
	}
	docs := make([]Document, 0, len(raw))
	for _, entry := range raw {
		d, ok := AsMap(entry)
		if !ok {
			continue
		}
		var doc Document
		if text, ok := GetString(d, "page_content"); ok {
			doc.Content = text
		} else if text, ok := GetString(d, "pageContent"); ok {
			doc.Content = text
		}
		if meta, ok := GetMap(d, "metadata"); ok {
			if encoded, err := json.Marshal(meta); err == nil {
				doc.MetadataJSON = string(encoded)
			}
		}
		docs = append(docs, doc)
	}
	return docs, true
}

// Copyright 2025 Poiesic Systems
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

// Package prompt manages the text templates sent to the generation service.
//
// Three templates are used: "qa" answers from retrieved reference material,
// "fallback" answers from general model knowledge when nothing was retrieved,
// and "rewrite" paraphrases a question for query expansion. Built-in defaults
// can be overridden by placing <name>.tmpl files in a prompts directory.
// Templates use Go text/template syntax and are rendered through langchaingo's
// prompts package.
package prompt

// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package repl

import (
	"regexp"

	"github.com/fatih/color"
)

// Patterns run in this order. Later patterns see the output of earlier ones,
// so inline code is styled first and its contents may still pick up bold or
// italic markup.
var (
	codePattern    = regexp.MustCompile("`([^`\n]+)`")
	bulletPattern  = regexp.MustCompile(`(?m)^(\s*)[-*+]\s+`)
	boldPattern    = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	italicPattern  = regexp.MustCompile(`\*([^*\n]+)\*`)
	headingPattern = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
)

// Formatter turns a small markdown subset into ANSI styling.
type Formatter struct {
	code    *color.Color
	bold    *color.Color
	italic  *color.Color
	heading *color.Color
	bullet  *color.Color
}

// NewFormatter creates a formatter. With colorize false every style renders
// as plain text, so markup is stripped but not styled.
func NewFormatter(colorize bool) *Formatter {
	f := &Formatter{
		code:    color.New(color.FgYellow),
		bold:    color.New(color.Bold),
		italic:  color.New(color.Italic),
		heading: color.New(color.Bold, color.FgCyan),
		bullet:  color.New(color.FgCyan),
	}
	for _, c := range []*color.Color{f.code, f.bold, f.italic, f.heading, f.bullet} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return f
}

// Format applies the markdown substitutions to text.
func (f *Formatter) Format(text string) string {
	text = replaceGroup(codePattern, text, func(s string) string { return f.code.Sprint(s) })
	text = bulletPattern.ReplaceAllString(text, "${1}"+f.bullet.Sprint("•")+" ")
	text = replaceGroup(boldPattern, text, func(s string) string { return f.bold.Sprint(s) })
	text = replaceGroup(italicPattern, text, func(s string) string { return f.italic.Sprint(s) })
	text = replaceGroup(headingPattern, text, func(s string) string { return f.heading.Sprint(s) })
	return text
}

// replaceGroup replaces each match of re with style applied to its first group.
func replaceGroup(re *regexp.Regexp, text string, style func(string) string) string {
	return re.ReplaceAllStringFunc(text, func(match string) string {
		return style(re.FindStringSubmatch(match)[1])
	})
}

// Package html turns HTML fragments into plain text. Web search engines
// return titles and snippets with inline markup and entities; these are
// cleaned before they are shown to the model or the user.
package html

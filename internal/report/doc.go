// Package report renders supervisor output for the CLI.
//
// Two documents are rendered: the state history read from the journal and
// the result of a one-shot `check`. Each has three formats:
//   - SimpleWriter: plain text for the terminal
//   - MarkdownWriter: tables for pasting into issues
//   - JSONWriter: structured output for scripts
//
// Writers implement the Writer interface, so the CLI picks one by flag and
// the rendering code does not care where the output goes.
package report

// Package report renders finished runs as CSV, JSON, Markdown or terminal text.
//
// Every writer accepts a run whose table is empty and renders it as a
// "nothing to rank" outcome instead of failing.
package report

// Package configs provides embedded configuration templates for scholia.
//
// Templates are embedded at build time with go:embed so they ship in
// every distribution, source builds and binary releases alike.
//
// Configuration hierarchy (see internal/config Load):
//  1. Hardcoded defaults (internal/config NewConfig)
//  2. User config (~/.config/scholia/config.yaml)
//  3. Corpus config (.scholia.yaml)
//  4. Environment variables (SCHOLIA_*)
//
// To change a template, edit the .yaml file in this directory and
// rebuild.
package configs

import _ "embed"

// CorpusConfigTemplate is the template for corpus-level configuration.
// 'scholia init' writes it to .scholia.yaml at the corpus root. Every
// setting ships commented out, so the file documents the knobs without
// overriding the defaults.
//
//go:embed corpus-config.example.yaml
var CorpusConfigTemplate string

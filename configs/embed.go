// Package configs holds configuration templates embedded at build time,
// so `loupe init` can scaffold a project without shipping extra files.
//
// To change the template, edit the .yaml file in this directory and
// rebuild.
package configs

import _ "embed"

// ProjectConfigTemplate is written to .loupe.yaml by `loupe init`.
// It documents every setting with its default value.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

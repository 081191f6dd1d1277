// Package config loads study configuration files.
//
// A study file is YAML (.yaml, .yml) or CUE (.cue). Both are checked against
// the embedded #Study definition in study.cue, so the same constraints apply
// whichever syntax is used. YAML is decoded strictly: unknown keys are
// rejected to catch typos.
//
// Example (YAML):
//
//	name: hilfo
//	study_type: personality
//	language: de
//	demographics: [age, gender, semester]
//	item_bank:
//	  count: 20
//	output_dir: ./data
//	enable_backup: true
//	batch_size: 5
package config

// Package pipeline runs a batch: discover source videos, classify each one
// against its output container, recover outputs left broken by earlier runs,
// plan jobs for the sources that still need work, and compress them on a
// bounded worker pool.
//
// Classification is a pure function of filesystem state, so a batch can be
// interrupted at any point and rerun: finished outputs are kept, unfinished
// or corrupt ones are deleted and redone.
package pipeline

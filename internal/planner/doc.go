// Package planner turns the SOURCE_GOOD sources of a classified batch into
// job descriptors for the compressor.
//
// A Job carries only the optional parameters the user supplied explicitly;
// every other setting is resolved at run time from the compressor defaults,
// so a job never pins a default the user did not choose.
package planner

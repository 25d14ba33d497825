// Package integrationtests runs whole build chains through the application,
// from HCL files on disk to the build summary.
package integrationtests

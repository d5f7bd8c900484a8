// SPDX-License-Identifier: MPL-2.0

// Package platform resolves the host OS family and CPU architecture family
// and maps them onto the runtime's downloadable artifact names and on-disk
// executable layout.
//
// Resolution never fails: an unknown OS resolves to Linux and an unknown
// architecture resolves to x64, each with a recorded warning. On Windows a
// 32-bit process may run on a 64-bit OS (WOW64); in that case the
// PROCESSOR_ARCHITEW6432 and PROCESSOR_ARCHITECTURE environment variables
// decide the architecture family.
package platform

// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package inject

// macros are the definitions the emitted calls expand to.
const macros = `#define VRTLMOD_LIKELY(x)   __builtin_expect(!!(x), 1)
#define VRTLMOD_UNLIKELY(x) __builtin_expect(!!(x), 0)

#define SEQ_TARGET_INJECT(TDentry) do { \
	if (VRTLMOD_UNLIKELY((TDentry).enable)) { \
		if (((TDentry).cntr <= 0) && (TDentry).mask) { \
			*((TDentry).data) ^= (TDentry).mask; \
			(TDentry).cntr++; \
		} \
	} \
} while (0)

#define SEQ_TARGET_INJECT_W(TDentry, word) do { \
	if (VRTLMOD_UNLIKELY((TDentry).enable)) { \
		if (((TDentry).cntr <= 0) && (TDentry).mask[(word)]) { \
			(TDentry).data[(word)] ^= (TDentry).mask[(word)]; \
			(TDentry).cntr++; \
		} \
	} \
} while (0)

#define INT_TARGET_INJECT(TDentry) SEQ_TARGET_INJECT(TDentry)

#define INT_TARGET_INJECT_W(TDentry, words) do { \
	for (unsigned vrtlmod_i = 0; vrtlmod_i < (words); ++vrtlmod_i) \
		SEQ_TARGET_INJECT_W(TDentry, vrtlmod_i); \
} while (0)
`

// Macros returns the C++ definitions of the injection macros.
func Macros() string {
	return macros
}

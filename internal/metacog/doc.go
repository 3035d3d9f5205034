// Package metacog assesses the other cognitive processes after every
// invocation.
//
// Each assessment scores performance, efficiency, accuracy, and reliability
// from the caller's declared context and the process's score history. The
// engine also tracks a seven-component cognitive-load model, a capability
// profile nudged toward each new assessment, and improvement
// recommendations merged from all of the above.
package metacog

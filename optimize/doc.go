// Package optimize holds the policies that decide what to strip from an APK.
//
// The container codecs only offer mutation primitives (remove a node, sweep
// unused strings, collapse a type, refresh). The policies here drive them:
//
//   - FrameworkOptimizer shrinks a framework APK (framework-res.apk and the
//     like) to what resource resolution against it needs: the resource table
//     and a reduced manifest.
//   - Stripper removes unused strings from every DEX, the resource table and the
//     manifest of an APK.
package optimize

package adapters

// Version is the library version reported to exchanges (wrapper ext wv,
// displaymanagerver).
const Version = "10.1.0"

// DisplayManager is the display manager name reported on every imp.
const DisplayManager = "Prebid.js"

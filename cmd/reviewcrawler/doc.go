// Command reviewcrawler runs one review crawl: it discovers organizations on
// the configured category listing, probes their page counts, and drains the
// resulting work set into the configured document store.
//
// Configuration comes from a config file (the path in CRAWLER_CONFIG, or
// config.* in the default search paths) and CRAWLER_* environment variables.
package main

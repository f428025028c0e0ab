package segment

// Version 语义化版本号
const Version = "0.2.0"
